package database

import "time"

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusInProgress  Status = "in_progress"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether no further transition will happen.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusInterrupted
}

// Ticket tracks one asynchronous scrape job.
type Ticket struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	ResourceID *string   `json:"resource_id"`
	CreatedAt  time.Time `json:"date"`
}

// Resource is the CSV output of a finished scrape job.
type Resource struct {
	ID        string    `json:"id"`
	Content   string    `json:"resource"`
	CreatedAt time.Time `json:"date"`
}

// TicketFilter narrows ListTickets.
type TicketFilter struct {
	Status Status
	Since  time.Time
	Limit  uint64
}

// Stats counts tickets per status.
type Stats struct {
	Tickets   map[Status]int
	Resources int
	CacheRows int
}
