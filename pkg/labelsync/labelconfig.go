package labelsync

import (
	"html"
	"strings"
)

// LabelConfig builds a bounding-box labeling interface over the task's
// image_url with one red label per class.
func LabelConfig(labels []string) string {
	var b strings.Builder
	b.WriteString("<View>\n")
	b.WriteString(`  <Image name="image_object" value="$image_url"/>` + "\n")
	b.WriteString(`  <RectangleLabels name="label" toName="image_object">` + "\n")
	for _, label := range labels {
		b.WriteString(`    <Label value="` + html.EscapeString(label) + `" background="red"/>` + "\n")
	}
	b.WriteString("  </RectangleLabels>\n")
	b.WriteString("</View>")
	return b.String()
}
