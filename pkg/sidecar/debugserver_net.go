package sidecar

import (
	"encoding/json"
	"net"
)

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func marshalForMirror(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}
