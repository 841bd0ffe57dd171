package pipeline

import "time"

// timeNow stamps conversation messages. Tests replace it to pin time.
var timeNow = time.Now
