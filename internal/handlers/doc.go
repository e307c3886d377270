// Package handlers provides the channel handlers bound by the link's channel
// table: a robot command/file channel, a configuration key/value channel and a
// camera bridge.
//
// Every request is a structured record with a "cmd" key. Replies carry a
// "status" of "ok" or "error"; errors list their codes under "error":
//
//	-> {cmd: "get", key: "wifi.ssid"}
//	<- {status: "ok", cmd: "get", key: "wifi.ssid", value: "lab"}
//	-> {cmd: "frobnicate"}
//	<- {status: "error", error: ["NOT_SUPPORT", "frobnicate"]}
//
// Handlers run on the link's thread of control and must not block for long.
package handlers
