package model

// Account is one rewards account as declared in the accounts file.
type Account struct {
	Email      string       `yaml:"email" json:"email"`
	Password   string       `yaml:"password" json:"password"`
	Proxy      AccountProxy `yaml:"proxy,omitempty" json:"proxy,omitzero"`
	UserAgents UserAgents   `yaml:"userAgents,omitempty" json:"userAgents,omitzero"`
}

// AccountProxy routes the account's sessions through a proxy. A zero value
// means a direct connection.
type AccountProxy struct {
	URL      string `yaml:"url" json:"url"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// UserAgents overrides the browser identity per session mode. Empty fields
// leave the automation surface's defaults in place.
type UserAgents struct {
	Desktop string `yaml:"desktop,omitempty" json:"desktop,omitempty"`
	Mobile  string `yaml:"mobile,omitempty" json:"mobile,omitempty"`
}
