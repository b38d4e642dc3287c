package terminology

import (
	"context"
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
	"github.com/cadasto/openehr-assistant-mcp/resources"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<terminology name="openehr" language="en">
	<codeset name="countries" issuer="ISO" openehr_id="countries" external_id="ISO_3166-1">
		<code value="NL"/>
		<code value="BE"/>
	</codeset>
	<group name="composition category" openehr_id="composition_category">
		<concept id="433" rubric="event"/>
		<concept id="431" rubric="persistent"/>
		<concept id="451" rubric="episodic"/>
	</group>
	<group name="setting" openehr_id="setting">
		<concept id="225" rubric="home"/>
		<concept id="227" rubric="emergency care"/>
	</group>
</terminology>`

func newTestTerminology(t *testing.T) *Terminology {
	t.Helper()
	fsys := fstest.MapFS{DefaultPath: {Data: []byte(sampleXML)}}
	term, err := Load(fsys, DefaultPath, logging.NewNop())
	require.NoError(t, err)
	return term
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(fstest.MapFS{}, DefaultPath, logging.NewNop())
	assert.Error(t, err)

	_, err = Load(fstest.MapFS{DefaultPath: {Data: []byte("<terminology><group")}}, DefaultPath, logging.NewNop())
	assert.Error(t, err)

	_, err = Load(fstest.MapFS{DefaultPath: {Data: []byte("<terminology></terminology>")}}, DefaultPath, logging.NewNop())
	assert.EqualError(t, err, "No terminology groups found.")

	_, err = Load(fstest.MapFS{DefaultPath: {Data: []byte(sampleXML)}}, DefaultPath, nil)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	term := newTestTerminology(t)
	ctx := context.Background()

	res, err := term.Resolve(ctx, "433", "")
	require.NoError(t, err)
	assert.Equal(t, &Resolution{ID: "433", Rubric: "event", GroupID: "composition_category", GroupName: "composition category"}, res)

	for _, in := range []string{"event", "EVENT", " Event "} {
		res, err = term.Resolve(ctx, in, "composition_category")
		require.NoError(t, err, in)
		assert.Equal(t, "433", res.ID)
	}

	res, err = term.Resolve(ctx, "Emergency Care", "SETTING")
	require.NoError(t, err)
	assert.Equal(t, "227", res.ID)
	assert.Equal(t, "setting", res.GroupID)
}

func TestResolve_Errors(t *testing.T) {
	term := newTestTerminology(t)
	ctx := context.Background()

	_, err := term.Resolve(ctx, "  ", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.EqualError(t, err, "Input cannot be empty.")

	_, err = term.Resolve(ctx, "event", "bad-id")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.EqualError(t, err, "Invalid terminology group ID: bad-id")

	_, err = term.Resolve(ctx, "event", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, `Terminology group "nope" not found.`)

	_, err = term.Resolve(ctx, "433", "setting")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, `Could not resolve "433" within group "setting" in openEHR terminology.`)

	_, err = term.Resolve(ctx, "unknown", "")
	assert.EqualError(t, err, `Could not resolve "unknown" in openEHR terminology.`)

	_, err = term.Resolve(ctx, "NaN", "")
	assert.ErrorIs(t, err, ErrNotFound, "NaN is matched as a rubric")
}

func TestAll(t *testing.T) {
	doc := newTestTerminology(t).All()

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"codesets": [{"name":"countries","issuer":"ISO","openehr_id":"countries","external_id":"ISO_3166-1","codeset":["NL","BE"]}],
		"groups": [
			{"name":"composition category","openehr_id":"composition_category","group":{"433":"event","431":"persistent","451":"episodic"}},
			{"name":"setting","openehr_id":"setting","group":{"225":"home","227":"emergency care"}}
		]
	}`, string(data))
}

func TestConceptMap_KeepsOrder(t *testing.T) {
	data, err := json.Marshal(ConceptMap{{ID: "9", Rubric: "b"}, {ID: "1", Rubric: "a \"q\""}})
	require.NoError(t, err)
	assert.Equal(t, `{"9":"b","1":"a \"q\""}`, string(data))

	data, err = json.Marshal(ConceptMap{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestRead(t *testing.T) {
	term := newTestTerminology(t)

	e, err := term.Read(" Group ", "composition_category")
	require.NoError(t, err)
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, `{"openehr_id":"composition_category","name":"composition category","group":{"433":"event","431":"persistent","451":"episodic"}}`, string(data))

	e, err = term.Read("codeset", "countries")
	require.NoError(t, err)
	data, err = json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, `{"openehr_id":"countries","name":"countries","codeset":["NL","BE"]}`, string(data))

	_, err = term.Read("concept", "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.EqualError(t, err, "Invalid terminology type: concept")

	_, err = term.Read("group", "countries")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Terminology group not found: countries")
}

func TestBundledTerminology(t *testing.T) {
	term, err := Load(resources.FS, DefaultPath, logging.NewNop())
	require.NoError(t, err)

	assert.NotEmpty(t, term.Codesets())
	assert.NotEmpty(t, term.Groups())

	res, err := term.Resolve(context.Background(), "433", "")
	require.NoError(t, err)
	assert.Equal(t, "event", res.Rubric)

	res, err = term.Resolve(context.Background(), "EVENT", "composition_category")
	require.NoError(t, err)
	assert.Equal(t, "433", res.ID)
}
