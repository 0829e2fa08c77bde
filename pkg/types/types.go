package types

import "encoding/json"

// Rating is one parsed input line. The timestamp is not kept.
type Rating struct {
	UserID string
	ItemID string
	Value  float64
}

// ItemRating is a single (item, rating) entry inside a user's list.
type ItemRating struct {
	ItemID string  `json:"item_id"`
	Value  float64 `json:"value"`
}

// UserRatings is every rating one user produced, in input order.
type UserRatings struct {
	UserID string       `json:"user_id"`
	Items  []ItemRating `json:"items"`
}

// PairKey is a directed item pair. (A,B) and (B,A) are distinct keys.
type PairKey struct {
	A string
	B string
}

// Swap returns the key for the opposite direction.
func (k PairKey) Swap() PairKey { return PairKey{A: k.B, B: k.A} }

// PairEntry is the wire form of one accumulated pair.
type PairEntry struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Count int64   `json:"n"`
	SumXX float64 `json:"xx"`
	SumYY float64 `json:"yy"`
	SumXY float64 `json:"xy"`
}

// SimilarityResult is a pair that survived the quality filter.
type SimilarityResult struct {
	Pair      PairKey
	Score     float64
	CoRatings int64
}

// NamedSimilarity is one line of the final report.
type NamedSimilarity struct {
	Anchor    string  `json:"anchor" bson:"anchor"`
	Neighbor  string  `json:"neighbor" bson:"neighbor"`
	Score     float64 `json:"score" bson:"score"`
	CoRatings int64   `json:"co_ratings" bson:"coRatings"`
}

// WorkerState representa el estado actual de un worker.
type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerBusy
	WorkerDisconnected
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	default:
		return "disconnected"
	}
}

// MarshalText lets the state render by name in JSON.
func (s WorkerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Message types exchanged between coordinator and workers.
const (
	MsgHello     = "HELLO"
	MsgAck       = "ACK"
	MsgTask      = "TASK"
	MsgResult    = "RESULT"
	MsgHeartbeat = "HEARTBEAT"
	MsgError     = "ERROR"
)

// Message es el contenedor genérico que se envía por TCP.
// El campo Type indica el tipo de mensaje y Data contiene el payload serializado.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewMessage marshals payload into a Message of the given type.
func NewMessage(typ string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Data: data}, nil
}

// ---- PAYLOADS ----

// Hello se envía cuando un worker se conecta al coordinador.
type Hello struct {
	WorkerID    string `json:"worker_id"`
	Concurrency int    `json:"concurrency"`
}

// Ack is the coordinator's answer to HELLO.
type Ack struct {
	WorkerID string `json:"worker_id"`
}

// Task carries one block of users whose pairs a worker must accumulate.
type Task struct {
	JobID  string        `json:"job_id"`
	TaskID string        `json:"task_id"`
	Users  []UserRatings `json:"users"`
}

// Result is the partial pair table a worker sends back for a Task.
type Result struct {
	JobID    string      `json:"job_id"`
	TaskID   string      `json:"task_id"`
	WorkerID string      `json:"worker_id"`
	Pairs    []PairEntry `json:"pairs"`
	Error    string      `json:"error,omitempty"`
}

// Heartbeat mantiene viva la conexión y reporta estado del worker.
type Heartbeat struct {
	WorkerID string `json:"worker_id"`
	Busy     bool   `json:"busy"`
}

// Envelope asocia un mensaje recibido con el ID del worker que lo envió.
type Envelope struct {
	WorkerID string
	Msg      Message
}
