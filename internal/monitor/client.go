package monitor

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
)

// DialStream connects to a Hub's /ws endpoint at url and returns a
// channel of Snapshots decoded from the connection until ctx is
// canceled or the server closes the socket, for a remote `monitor`
// invocation pointed at another host's launcher.
func DialStream(ctx context.Context, url string) (<-chan Snapshot, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 4)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
