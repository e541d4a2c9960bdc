// Package prompt augments a code-interpreter system prompt with
// information about the files attached to the current chat.
package prompt

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codefionn/kernelrunner/internal/chatstore"
	"github.com/codefionn/kernelrunner/internal/logger"
	"github.com/codefionn/kernelrunner/internal/mount"
	"github.com/dustin/go-humanize"
)

// Augment appends an "Available Files" section to basePrompt
// describing the attached files and how executed code can reach them
// under the virtual mount. With no files the base prompt is returned
// unchanged.
func Augment(basePrompt string, files []chatstore.AttachedFile, chatID string) string {
	if len(files) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n#### Available Files\n")
	fmt.Fprintf(&b, "The following files are available in your `%s` directory:\n", mount.DataMount)

	for _, file := range files {
		if file.Size > 0 {
			fmt.Fprintf(&b, "- `%s` (%s)\n", file.Name, humanize.Bytes(uint64(file.Size)))
		} else {
			fmt.Fprintf(&b, "- `%s`\n", file.Name)
		}
	}

	b.WriteString("\nYou can access these files directly using their filenames in `")
	b.WriteString(mount.DataMount)
	b.WriteString("/`. For example:\n```python\nimport pandas as pd\n")
	b.WriteString(usageExample(files[0].Name))
	b.WriteString("```\n\n")
	b.WriteString("**Important**: Save and persist output only if the user requests the format in Excel, CSV, or PDF file formats in the '")
	b.WriteString(mount.DataMount)
	b.WriteString("' directory.")

	logger.Debug("augmented prompt for chat %s with %d files", chatID, len(files))
	return b.String()
}

func usageExample(firstFile string) string {
	path := mount.DataMount + "/" + firstFile

	switch strings.ToLower(filepath.Ext(firstFile)) {
	case ".csv":
		return fmt.Sprintf("df = pd.read_csv('%s')\n", path)
	case ".xlsx", ".xls":
		return fmt.Sprintf("df = pd.read_excel('%s')\n", path)
	case ".json":
		return fmt.Sprintf("import json\nwith open('%s', 'r') as f:\n    data = json.load(f)\n", path)
	default:
		return fmt.Sprintf("# Process %s\nwith open('%s', 'r') as f:\n    content = f.read()\n", firstFile, path)
	}
}
