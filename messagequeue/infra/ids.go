package infra

import (
	"time"

	"github.com/google/uuid"
)

// recordIDs agrupa a geração de id e de timestamp usada por todos os stores.
type recordIDs struct {
	now   func() time.Time
	newID func() string
}

func defaultRecordIDs() recordIDs {
	return recordIDs{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}
