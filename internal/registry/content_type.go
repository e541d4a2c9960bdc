package registry

import "strings"

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".pdf":  "application/pdf",
}

// ContentType maps a file extension (with dot, any case) to its MIME
// type. Unknown extensions fall back to application/octet-stream.
func ContentType(extension string) string {
	if ct, ok := contentTypes[strings.ToLower(extension)]; ok {
		return ct
	}
	return "application/octet-stream"
}
