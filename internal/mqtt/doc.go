// Package mqtt connects the proxy to an MQTT broker. It keeps the
// connection alive with autopaho, announces availability under
// {hostname}/status and accepts radio commands on {hostname}/radio/set.
package mqtt
