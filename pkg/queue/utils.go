package queue

import (
	"fmt"
	"strings"
)

// taskNameOf is the default task name of payloads of v's type. Pointer
// indirection is dropped so a handler of *T serves tasks enqueued with T.
func taskNameOf(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
