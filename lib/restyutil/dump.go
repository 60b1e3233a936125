// Package restyutil dumps the http exchanges of a resty client, one file per
// response, for inspecting what the portal actually served.
package restyutil

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Dump writes every response of client to output. A nil output is a no-op.
func Dump(client *resty.Client, output Output) {
	if output == nil {
		return
	}
	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(&counter, 1)
		output.Write(fmt.Sprintf("%04d-%s.txt", id, strings.ToLower(res.Request.Method)), formatHttpMessage(res))
		return nil
	})
}
