package wsproto

import "github.com/gorilla/websocket"

// Close codes and reasons (spec.md §6 "Close codes and reasons").
const (
	CodeNormal   = websocket.CloseNormalClosure // 1000
	CodeProtocol = websocket.CloseProtocolError // 1002

	ReasonGracefulShutdown     = "streamr:node:graceful-shutdown"
	ReasonNoSharedStreams      = "streamr:node:no-shared-streams"
	ReasonDuplicateConnection  = "streamr:endpoint:duplicate-connection"
	ReasonMissingRequiredParam = "streamr:node:missing-required-parameter"
	ReasonDeadConnection       = "streamr:endpoint:dead-connection"
)

// Required upgrade parameters (spec.md §6 "Incoming upgrade").
const (
	ParamAddress  = "address"
	HeaderPeerID  = "streamr-peer-id"
	HeaderPeerTyp = "streamr-peer-type"
)
