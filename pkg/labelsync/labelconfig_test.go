package labelsync

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelConfig(t *testing.T) {
	config := LabelConfig([]string{"scratch", "dent"})
	assert.Equal(t, `<View>
  <Image name="image_object" value="$image_url"/>
  <RectangleLabels name="label" toName="image_object">
    <Label value="scratch" background="red"/>
    <Label value="dent" background="red"/>
  </RectangleLabels>
</View>`, config)
}

func TestLabelConfig_EscapesLabels(t *testing.T) {
	config := LabelConfig([]string{`a"b<c>&d`, "it's"})

	var view struct {
		Labels []struct {
			Value string `xml:"value,attr"`
		} `xml:"RectangleLabels>Label"`
	}
	require.NoError(t, xml.Unmarshal([]byte(config), &view))
	require.Len(t, view.Labels, 2)
	assert.Equal(t, `a"b<c>&d`, view.Labels[0].Value)
	assert.Equal(t, "it's", view.Labels[1].Value)
}
