package room

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ezmad-Ze/chat-app/logger"
	"github.com/Ezmad-Ze/chat-app/service/storage"
)

// HandlerList serves the room catalogue so a client can seed its room list
// over plain HTTP before (or without) opening the websocket. Live updates
// then arrive as roomCreated events.
func HandlerList(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, err := store.ListRooms(c.Request.Context())
		if err != nil {
			logger.Errorf("[room] list rooms: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list rooms"})
			return
		}
		if rooms == nil {
			rooms = []storage.Room{}
		}
		c.JSON(http.StatusOK, rooms)
	}
}
