// Package manifest loads the application manifest served at /manifest.json.
package manifest

// Icon is one entry of Manifest.Icons.
type Icon struct {
	Src   string `json:"src"`
	Type  string `json:"type"`
	Sizes string `json:"sizes"`
}

// Manifest describes the hosted application.
type Manifest struct {
	Author    string `json:"author"`
	ShortName string `json:"short_name"`
	AppID     string `json:"appId"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Icons     []Icon `json:"icons"`
}
