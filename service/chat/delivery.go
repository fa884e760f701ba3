package chat

import (
	"hash/fnv"

	"github.com/Ezmad-Ze/chat-app/tools/safe"
)

type deliveryJob struct {
	clients []*Client
	payload []byte
}

// Delivery is the local delivery stage: worker goroutines that move a
// payload onto many clients' send queues without tying up the broker's
// subscription goroutine. Jobs are sharded by channel key so frames from
// one room always pass through the same worker, preserving the broker's
// per-channel order all the way to each client's queue.
type Delivery struct {
	shards []chan deliveryJob
}

func NewDelivery(workers, queue int) *Delivery {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	d := &Delivery{shards: make([]chan deliveryJob, workers)}
	for i := range d.shards {
		jobs := make(chan deliveryJob, queue)
		d.shards[i] = jobs
		safe.Go(func() {
			for job := range jobs {
				for _, c := range job.clients {
					c.enqueue(job.payload)
				}
			}
		})
	}
	return d
}

func (d *Delivery) Broadcast(key string, clients []*Client, payload []byte) {
	if len(clients) == 0 || len(payload) == 0 {
		return
	}
	d.shards[shard(key, len(d.shards))] <- deliveryJob{clients: clients, payload: payload}
}

func (d *Delivery) Close() {
	for _, jobs := range d.shards {
		close(jobs)
	}
}

func shard(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
