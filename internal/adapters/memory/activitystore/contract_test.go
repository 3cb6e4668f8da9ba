package activitystore

import (
	"testing"

	"github.com/campushub/activity-registration-api/internal/adapters/contracttest"
	activitystoreport "github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
)

func TestContract_ActivityStore(t *testing.T) {
	contracttest.RunActivityStore(t, func(t *testing.T) (activitystoreport.Store, func()) {
		t.Helper()
		return NewStore(), nil
	})
}
