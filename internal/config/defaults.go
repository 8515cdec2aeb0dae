package config

import (
	"runtime"

	"github.com/spf13/viper"
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	LogFile    string
	ConfigPath string
	TokenFile  string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			LogFile:    `C:\ProgramData\Autoregister\autoregister.log`,
			ConfigPath: `C:\ProgramData\Autoregister\config.yaml`,
			TokenFile:  `C:\ProgramData\Autoregister\netbox.token`,
		}
	case "freebsd":
		return PlatformDefaults{
			LogFile:    "/var/log/autoregister/autoregister.log",
			ConfigPath: "/usr/local/etc/autoregister/config.yaml",
			TokenFile:  "/usr/local/etc/autoregister/netbox.token",
		}
	default:
		// linux and anything unknown
		return PlatformDefaults{
			LogFile:    "/var/log/autoregister/autoregister.log",
			ConfigPath: "/etc/autoregister/config.yaml",
			TokenFile:  "/etc/autoregister/netbox.token",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// UpdateConfigDefaults sets the platform-specific viper defaults
func UpdateConfigDefaults(v *viper.Viper) {
	defaults := GetPlatformDefaults()

	v.SetDefault("logging.file", defaults.LogFile)
	v.SetDefault("netbox.auth.token_file", defaults.TokenFile)
}
