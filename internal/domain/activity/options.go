package activity

import "time"

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ActivityType *ActivityType
	Model        string
	Since        time.Time
	Limit        int
	Offset       int
}
