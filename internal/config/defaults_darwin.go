//go:build darwin

package config

// rxDSPClientRecvBuffer is the receive buffer requested on the device-facing
// socket of RX DSP channels. macOS rejects SO_RCVBUF requests anywhere near
// the size Linux accepts, so ask for far less.
const rxDSPClientRecvBuffer ByteSize = 1_000_000
