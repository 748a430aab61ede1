// Package weather provides the mock weather tool.
package weather

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/encoding"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/effective-security/toolagent/tools"
	"github.com/invopop/jsonschema"
)

// ToolName is the name of the weather tool
const ToolName = "weather_tool"

// DateFormat is the format of the date parameter
const DateFormat = "2006-01-02"

// TimeNowFn allows to override the current time in tests
var TimeNowFn = time.Now

// Request represents the tool input.
type Request struct {
	Location string `json:"location" yaml:"location" jsonschema:"description=The city to get the weather for"`
	Date     string `json:"date,omitempty" yaml:"date,omitempty" jsonschema:"description=The date in YYYY-MM-DD format"`
}

// Conditions describes the weather at a location
type Conditions struct {
	Location    string `json:"location" yaml:"location"`
	Date        string `json:"date" yaml:"date"`
	Condition   string `json:"condition" yaml:"condition"`
	Temperature int    `json:"temperature" yaml:"temperature"`
}

func (c *Conditions) String() string {
	return fmt.Sprintf("The weather in %s on %s is %s with a temperature of %d°F.",
		c.Location, c.Date, c.Condition, c.Temperature)
}

// Locations returns the mock weather data in the declaration order
func Locations() []Conditions {
	return []Conditions{
		{Location: "New York", Condition: "sunny", Temperature: 72},
		{Location: "London", Condition: "cloudy", Temperature: 65},
		{Location: "Tokyo", Condition: "partly cloudy", Temperature: 80},
		{Location: "Sydney", Condition: "clear", Temperature: 85},
		{Location: "Paris", Condition: "rainy", Temperature: 70},
	}
}

// Tool returns the weather from the mock data
type Tool struct {
	name        string
	description string
	params      *jsonschema.Schema
	parser      *encoding.TypedOutputParser[Request]
	locations   []Conditions
}

// ensure Tool implements the tools.Tool interface
var _ tools.Tool[Request] = (*Tool)(nil)

// New returns the weather tool
func New() (*Tool, error) {
	sc, err := schema.New(reflect.TypeOf(Request{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	parser, err := encoding.NewTypedOutputParser[Request](encoding.ModeJSON)
	if err != nil {
		return nil, err
	}
	tool := &Tool{
		name:        ToolName,
		description: "Get weather information for a specific location and optional date (format: YYYY-MM-DD). If no date is provided, current weather is returned.",
		params:      sc.Parameters,
		parser:      parser,
		locations:   Locations(),
	}
	return tool, nil
}

// WithLocations replaces the mock data
func (t *Tool) WithLocations(locations []Conditions) *Tool {
	t.locations = locations
	return t
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() *jsonschema.Schema {
	return t.params
}

// Get returns the weather conditions
func (t *Tool) Get(_ context.Context, req *Request) (*Conditions, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, errors.New("invalid request: empty location")
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = TimeNowFn().Format(DateFormat)
	} else if _, err := time.Parse(DateFormat, date); err != nil {
		return nil, errors.Newf("invalid date %q, expected format: YYYY-MM-DD", date)
	}

	for _, c := range t.locations {
		if strings.EqualFold(c.Location, location) {
			res := c
			res.Date = date
			return &res, nil
		}
	}

	names := make([]string, 0, len(t.locations))
	for _, c := range t.locations {
		names = append(names, c.Location)
	}
	return nil, errors.Newf("Weather data for %s is not available. Available locations: %s.",
		strings.ToLower(location), strings.Join(names, ", "))
}

func (t *Tool) Run(ctx context.Context, req *Request) (string, error) {
	res, err := t.Get(ctx, req)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	req, err := t.parser.Parse(input)
	if err != nil {
		return "", errors.Mark(errors.WithMessage(err, "failed to unmarshal input"), tools.ErrValidation)
	}
	return t.Run(ctx, req)
}
