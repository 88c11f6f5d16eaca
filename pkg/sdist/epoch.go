package sdist

import (
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	buildTimeOnce sync.Once
	buildTime     time.Time
)

// BuildTime is the timestamp that goes into built artifacts.  It honors
// SOURCE_DATE_EPOCH and is computed once, so every artifact of one engine
// process agrees.
func BuildTime() time.Time {
	buildTimeOnce.Do(func() {
		secs, err := strconv.ParseInt(os.Getenv("SOURCE_DATE_EPOCH"), 10, 64)
		if err == nil {
			buildTime = time.Unix(secs, 0)
		} else {
			buildTime = time.Now()
		}
	})
	return buildTime
}
