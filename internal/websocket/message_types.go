package websocket

// Server to client events
const (
	// RESULT_FINALIZED tells a student their attempt has been scored
	RESULT_FINALIZED = "result:finalized"

	// RANKINGS_UPDATED tells everyone a test's leaderboard was recomputed
	RANKINGS_UPDATED = "test:rankings_updated"

	// SERVER_ERROR reports a rejected client message
	SERVER_ERROR = "server:error"

	PONG = "pong"
)

// Client to server messages
const (
	PING = "ping"
)

// ResultFinalizedEvent is the payload of RESULT_FINALIZED
type ResultFinalizedEvent struct {
	TestID uint   `json:"test_id"`
	Status string `json:"status"`
}

// RankingsUpdatedEvent is the payload of RANKINGS_UPDATED
type RankingsUpdatedEvent struct {
	TestID uint `json:"test_id"`
	Ranked int  `json:"ranked"`
}
