package guard

import "time"

const (
	DefaultLoginPath        = "/auth/login"
	DefaultRegisterPath     = "/auth/register"
	DefaultLogoutPath       = "/auth/logout"
	DefaultUnauthorizedPath = "/unauthorized"
	DefaultHomePath         = "/dashboard"
	DefaultAdminHomePath    = "/admin/dashboard"
	DefaultReturnParam      = "redirect"
	DefaultRequestTimeout   = 10 * time.Second
	DefaultPhoneRegion      = "US"
)

var _ Config = Options{}

// Options is the default Config implementation.
type Options struct {
	BaseURL            string        `json:"base_url" koanf:"base_url"`
	RequestTimeout     time.Duration `json:"request_timeout" koanf:"request_timeout"`
	DefaultPhoneRegion string        `json:"default_phone_region" koanf:"default_phone_region"`
	Debug              bool          `json:"debug" koanf:"debug"`
	LoginPath          string        `json:"login_path" koanf:"login_path"`
	RegisterPath       string        `json:"register_path" koanf:"register_path"`
	UnauthorizedPath   string        `json:"unauthorized_path" koanf:"unauthorized_path"`
	HomePath           string        `json:"home_path" koanf:"home_path"`
	AdminRole          string        `json:"admin_role" koanf:"admin_role"`
	AdminHomePath      string        `json:"admin_home_path" koanf:"admin_home_path"`
	ReturnParam        string        `json:"return_param" koanf:"return_param"`
}

// DefaultOptions returns the options used when no Config is provided.
func DefaultOptions() Options {
	return Options{
		RequestTimeout:     DefaultRequestTimeout,
		DefaultPhoneRegion: DefaultPhoneRegion,
		LoginPath:          DefaultLoginPath,
		RegisterPath:       DefaultRegisterPath,
		UnauthorizedPath:   DefaultUnauthorizedPath,
		HomePath:           DefaultHomePath,
		AdminRole:          RoleAdmin,
		AdminHomePath:      DefaultAdminHomePath,
		ReturnParam:        DefaultReturnParam,
	}
}

func (o Options) GetBaseURL() string { return o.BaseURL }

func (o Options) GetRequestTimeout() time.Duration {
	if o.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return o.RequestTimeout
}

func (o Options) GetDefaultPhoneRegion() string {
	return orDefault(o.DefaultPhoneRegion, DefaultPhoneRegion)
}

func (o Options) GetDebug() bool { return o.Debug }

func (o Options) GetLoginPath() string { return orDefault(o.LoginPath, DefaultLoginPath) }

func (o Options) GetRegisterPath() string { return orDefault(o.RegisterPath, DefaultRegisterPath) }

func (o Options) GetUnauthorizedPath() string {
	return orDefault(o.UnauthorizedPath, DefaultUnauthorizedPath)
}

func (o Options) GetHomePath() string { return orDefault(o.HomePath, DefaultHomePath) }

func (o Options) GetAdminRole() string { return orDefault(o.AdminRole, RoleAdmin) }

func (o Options) GetAdminHomePath() string {
	return orDefault(o.AdminHomePath, DefaultAdminHomePath)
}

func (o Options) GetReturnParam() string { return orDefault(o.ReturnParam, DefaultReturnParam) }

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
