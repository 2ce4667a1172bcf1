// Package admin serves the access point's HTTP administration API.
//
// Routes:
//
//	GET  /api/health         liveness and version
//	GET  /api/topology       current topology
//	POST /api/device/add     {"deviceId"} adds a device to the topology
//	POST /api/device/send    {"deviceId","text","targetId"} asks a device to send
//	POST /api/device/deauth  {"deviceId"} destroys a device session
//	GET  /api/sessions       handshake states, session ledger and counters
//	POST /api/keys/save      {"id","pubHex","privHex"} writes <id>.keys.txt
//
// Every response is JSON. Mutating routes answer {"ok":true,...} or
// {"ok":false,"error":"..."}.
package admin
