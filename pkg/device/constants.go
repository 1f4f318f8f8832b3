package device

// Bus type names reported by Get-Disk.
const (
	BusUSB = "USB"
)
