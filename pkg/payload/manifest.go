// Package payload stages the downloader files onto a provisioned drive.
package payload

const (
	// DefaultFolder is the directory created at the drive root.
	DefaultFolder = "Sequence downloader USB"

	ExecutableName = "SequenceDownloaderUSB.exe"
	TriggerScript  = "run_on_insert.ps1"
	InstallScript  = "install_usb_autorun.ps1"
	SettingsName   = "settings.json"
	ReadmeName     = "README.txt"
)

// Entry maps one embedded source onto a path relative to the payload folder.
type Entry struct {
	Source      string
	Destination string
}

// Manifest is staged in order.
type Manifest []Entry

// DefaultManifest returns the fixed file set every provisioned drive carries.
func DefaultManifest() Manifest {
	return Manifest{
		{Source: ExecutableName, Destination: ExecutableName},
		{Source: TriggerScript, Destination: TriggerScript},
		{Source: InstallScript, Destination: InstallScript},
		{Source: SettingsName, Destination: SettingsName},
		{Source: ReadmeName, Destination: ReadmeName},
	}
}

// Sources lists the embedded names the manifest needs.
func (m Manifest) Sources() []string {
	out := make([]string, 0, len(m))
	for _, e := range m {
		out = append(out, e.Source)
	}
	return out
}
