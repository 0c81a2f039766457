package game

import (
	"sync"
	"time"
)

type QueueEntry struct {
	ConnectionID   string
	Nickname       string
	IntraID        int64
	TargetNickname string
	QueuedAt       time.Time
}

func (e QueueEntry) player() Player {
	return Player{
		ConnectionID: e.ConnectionID,
		Nickname:     e.Nickname,
		IntraID:      e.IntraID,
	}
}

//Queue keeps pending start requests in arrival order.
//Random requests are paired strictly FIFO, friend requests are paired by nickname.
type Queue struct {
	sync.Mutex
	entries []QueueEntry
}

func NewQueue() *Queue {
	return &Queue{
		entries: make([]QueueEntry, 0),
	}
}

//EnqueueRandom appends the entry and pops the two oldest random entries if there are at least two of them
func (q *Queue) EnqueueRandom(entry QueueEntry) (QueueEntry, QueueEntry, bool) {
	q.Lock()
	defer q.Unlock()

	entry.TargetNickname = ""
	q.push(entry)

	first, second := -1, -1
	for i, e := range q.entries {
		if e.TargetNickname != "" {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		second = i
		break
	}
	if second < 0 {
		return QueueEntry{}, QueueEntry{}, false
	}

	p1, p2 := q.entries[first], q.entries[second]
	q.removeAt(second)
	q.removeAt(first)
	return p1, p2, true
}

//EnqueueFriend looks for the target nickname in the queue. If it is found both entries leave the queue,
//otherwise the requester waits in the queue so the friend can find it later.
//The returned pair is ordered as (friend, requester): the one who waited becomes player1.
func (q *Queue) EnqueueFriend(entry QueueEntry) (QueueEntry, QueueEntry, bool) {
	q.Lock()
	defer q.Unlock()

	q.drop(entry.ConnectionID, entry.Nickname)

	if entry.TargetNickname != "" && entry.TargetNickname != entry.Nickname {
		for i, e := range q.entries {
			if e.Nickname != entry.TargetNickname || e.ConnectionID == entry.ConnectionID {
				continue
			}
			//Friend is waiting for someone else
			if e.TargetNickname != "" && e.TargetNickname != entry.Nickname {
				continue
			}
			q.removeAt(i)
			return e, entry, true
		}
	}

	q.entries = append(q.entries, entry)
	return QueueEntry{}, QueueEntry{}, false
}

//PushFront puts a popped pair back to the head of the queue, keeping their order
func (q *Queue) PushFront(entries ...QueueEntry) {
	q.Lock()
	defer q.Unlock()

	for _, e := range entries {
		q.drop(e.ConnectionID, e.Nickname)
	}
	q.entries = append(append(make([]QueueEntry, 0, len(q.entries)+len(entries)), entries...), q.entries...)
}

//Dequeue removes every entry of the connection. Unknown connections are ignored.
func (q *Queue) Dequeue(connectionID string) int {
	q.Lock()
	defer q.Unlock()

	return q.drop(connectionID, "")
}

func (q *Queue) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.entries)
}

func (q *Queue) Contains(connectionID string) bool {
	q.Lock()
	defer q.Unlock()
	for _, e := range q.entries {
		if e.ConnectionID == connectionID {
			return true
		}
	}
	return false
}

func (q *Queue) Clear() {
	q.Lock()
	q.entries = make([]QueueEntry, 0)
	q.Unlock()
}

//push replaces any previous entry of the same connection or user
func (q *Queue) push(entry QueueEntry) {
	q.drop(entry.ConnectionID, entry.Nickname)
	q.entries = append(q.entries, entry)
}

func (q *Queue) drop(connectionID string, nickname string) int {
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.ConnectionID == connectionID || (nickname != "" && e.Nickname == nickname) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed
}

func (q *Queue) removeAt(i int) {
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
}
