package portal

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/pumpwatch/pumpwatch/pkg/types"
)

// rawFields is the parser's output: label-matched raw strings per sensor,
// before any normalization.
type rawFields map[types.SensorKey]string

// parsePayload accepts either the JSON envelope {"html": "<...>"} or a bare
// HTML fragment, depending on which shape the endpoint served, and extracts
// the raw string for every recognizable sensor.
func parsePayload(raw []byte) (rawFields, error) {
	src := string(raw)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			HTML string `json:"html"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, &ParseError{Reason: "invalid JSON envelope"}
		}
		if envelope.HTML == "" {
			return nil, &ParseError{Reason: "JSON envelope has no html content"}
		}
		src = envelope.HTML
	}

	return parseDocument(src)
}

// matcher is one extraction strategy against the indexed document. For each
// sensor an ordered list of matchers is tried and the first hit wins; the
// fallback chains exist because the vendor's labels differ between firmware
// and UI versions.
type matcher func(d *document) (string, bool)

var sensorStrategies = []struct {
	key types.SensorKey
	try []matcher
}{
	{types.SensorSupplyTemperature1, []matcher{pointerText("aanvoer-1")}},
	{types.SensorSupplyTemperature2, []matcher{pointerText("aanvoer-2")}},
	{types.SensorSourceTemperature1, []matcher{pointerText("bron-1")}},
	{types.SensorSourceTemperature2, []matcher{pointerText("bron-2")}},
	{types.SensorOutdoorTemperature, []matcher{pointerText("buitentemp")}},
	{types.SensorInsideTemperature, []matcher{pointerText("binnen temp."), elementText("inside-temp")}},
	{types.SensorInsideConfiguredTemperature, []matcher{pointerText("ingestelde binnen temp. "), elementText("inside-configured-temp")}},
	{types.SensorHotWaterTemperature, []matcher{pointerText("W.W. temperatuur.")}},
	{types.SensorHotWaterConfiguredTemp, []matcher{pointerText("W.W. temperatuur. ingesteld")}},
	{types.SensorPowerConsumption, []matcher{pointerText("Opgenomen vermogen")}},
	{types.SensorEnergyDelivered, []matcher{pointerText("Geleverde energie")}},
	{types.SensorCOP, []matcher{pointerText("SPF")}},
	{types.SensorOperationMode, []matcher{elementText("operation-mode")}},
	{types.SensorHeatingModeStatus, []matcher{elementTitle("heating-mode")}},
	{types.SensorDHWStatus, []matcher{dgsStatus("dhw")}},
	{types.SensorDG1Status, []matcher{dgsStatus("dg1")}},
}

// parseDocument runs every sensor's strategy chain against the fragment. A
// sensor with no match is omitted; a document where nothing matches at all
// is a structural mismatch and errors the cycle.
func parseDocument(src string) (rawFields, error) {
	doc, err := indexDocument(src)
	if err != nil {
		return nil, err
	}

	fields := make(rawFields)
	for _, s := range sensorStrategies {
		for _, m := range s.try {
			if v, ok := m(doc); ok {
				fields[s.key] = v
				break
			}
		}
	}

	if len(fields) == 0 {
		return nil, &ParseError{Reason: "no recognizable data points"}
	}
	return fields, nil
}

// document is a flat index of the dashboard fragment: everything the
// matchers look up, computed in a single walk.
type document struct {
	// pointer maps div.pointer data-type attributes to their text.
	pointer map[string]string
	// elementText/elementTitle map the non-"element" class of
	// div.element.<class> nodes to text and title.
	elementText  map[string]string
	elementTitle map[string]string
	// dgs maps span labels inside div.element.dgs to ON/OFF (an "on"
	// class on the span means the stage is active).
	dgs map[string]string
}

func indexDocument(src string) (*document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, &ParseError{Reason: "payload is not parseable HTML"}
	}

	d := &document{
		pointer:      make(map[string]string),
		elementText:  make(map[string]string),
		elementTitle: make(map[string]string),
		dgs:          make(map[string]string),
	}

	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" {
			return
		}
		var class, dataType, title string
		for _, a := range n.Attr {
			switch a.Key {
			case "class":
				class = a.Val
			case "data-type":
				dataType = a.Val
			case "title":
				title = a.Val
			}
		}
		classes := strings.Fields(class)

		if hasClass(classes, "pointer") && dataType != "" {
			if _, ok := d.pointer[dataType]; !ok {
				d.pointer[dataType] = nodeText(n)
			}
			return
		}

		if !hasClass(classes, "element") {
			return
		}
		for _, cl := range classes {
			if cl == "element" {
				continue
			}
			if _, ok := d.elementText[cl]; !ok {
				d.elementText[cl] = nodeText(n)
				d.elementTitle[cl] = strings.TrimSpace(title)
			}
		}
		if hasClass(classes, "dgs") {
			d.indexDGS(n)
		}
	})

	return d, nil
}

// indexDGS records the on/off state of each stage span under the dgs block.
func (d *document) indexDGS(n *html.Node) {
	walk(n, func(c *html.Node) {
		if c.Type != html.ElementNode || c.Data != "span" {
			return
		}
		label := nodeText(c)
		if label == "" {
			return
		}
		state := "OFF"
		for _, a := range c.Attr {
			if a.Key == "class" && hasClass(strings.Fields(a.Val), "on") {
				state = "ON"
			}
		}
		if _, ok := d.dgs[label]; !ok {
			d.dgs[label] = state
		}
	})
}

func hasClass(classes []string, want string) bool {
	for _, c := range classes {
		if c == want {
			return true
		}
	}
	return false
}

func pointerText(label string) matcher {
	return func(d *document) (string, bool) {
		v, ok := d.pointer[label]
		return v, ok && v != ""
	}
}

func elementText(class string) matcher {
	return func(d *document) (string, bool) {
		v, ok := d.elementText[class]
		return v, ok && v != ""
	}
}

func elementTitle(class string) matcher {
	return func(d *document) (string, bool) {
		v, ok := d.elementTitle[class]
		return v, ok && v != ""
	}
}

func dgsStatus(label string) matcher {
	return func(d *document) (string, bool) {
		v, ok := d.dgs[label]
		return v, ok
	}
}
