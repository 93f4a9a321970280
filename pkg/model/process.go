package model

// Process is a ProcessList record describing how a physics process is generated.
type Process struct {
	TarBallCSPath string  `json:"TarBallCSPath" yaml:"TarBallCSPath"`
	Detail        string  `json:"Detail" yaml:"Detail"`
	Generator     string  `json:"Generator" yaml:"Generator"`
	Model         string  `json:"Model" yaml:"Model"`
	Restrictions  string  `json:"Restrictions" yaml:"Restrictions"`
	InFile        string  `json:"InFile" yaml:"InFile"`
	CrossSection  float64 `json:"CrossSection" yaml:"CrossSection"`
}
