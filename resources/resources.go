package resources

import (
	"embed"
)

//go:embed notifications.yml greeting.yml
var FS embed.FS
