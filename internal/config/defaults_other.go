//go:build !darwin

package config

// rxDSPClientRecvBuffer is the receive buffer requested on the device-facing
// socket of RX DSP channels. Sized to absorb scheduling stalls while the
// device streams at full rate.
const rxDSPClientRecvBuffer ByteSize = 50_000_000
