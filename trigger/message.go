// Package trigger decouples "export registered" from "export executed":
// a message on the queue carries the register id to a consumer, a
// waiting-window table tracks dispatches, and a compensation scanner
// re-dispatches records whose trigger was lost.
package trigger

import (
	"encoding/json"
	"strconv"

	"github.com/svnlab/easy-file/errors"
)

// TaskTypeExport is the asynq task type for export trigger messages.
const TaskTypeExport = "export:trigger"

// Message is the wire payload of a trigger. The schema is deliberately
// minimal; everything else is re-read from the record store on receipt.
type Message struct {
	RegisterID       int64 `json:"registerId"`
	TriggerTimestamp int64 `json:"triggerTimestamp"` // epoch millis
}

// Encode serializes the message for the queue.
func (m *Message) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshal trigger message")
	}
	return body, nil
}

// DecodeMessage parses a trigger message payload.
func DecodeMessage(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal trigger message")
	}
	if m.RegisterID == 0 {
		return nil, errors.New("trigger message missing registerId")
	}
	return &m, nil
}

// TaskID builds the broker task id for one dispatch of a register id.
// Including the dispatch count collapses broker-level redeliveries of the
// same dispatch while letting compensation enqueue a fresh one.
func TaskID(registerID int64, count int) string {
	return TaskTypeExport + ":" + strconv.FormatInt(registerID, 10) + ":" + strconv.Itoa(count)
}
