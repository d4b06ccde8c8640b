package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToSurvey(surveyID string, msgType string, payload interface{})
	DisconnectSurvey(surveyID string)
	Subscribers(surveyID string) int
}

// Live push message types
const (
	MsgLiveSnapshot = "live_snapshot"
	MsgStatusChange = "status_changed"
)
