package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"scouted/discovery-service/internal/model"
)

func TestRawOpportunityNullFieldsSerialiseAsNull(t *testing.T) {
	opp := model.RawOpportunity{
		Title:     "Grant",
		SourceURL: "https://example.org/g",
		Tags:      []string{"Education"},
	}
	b, err := json.Marshal(opp)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"deadline", "poc_email", "organisation", "amount", "location"} {
		v, ok := m[k]
		assert.True(t, ok, "%s must be present", k)
		assert.Nil(t, v, "%s must be null", k)
	}
	_, hasCategories := m["Categories"]
	assert.False(t, hasCategories)
}

func TestParsePolicy(t *testing.T) {
	p, err := model.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyGeneral, p)

	p, err = model.ParsePolicy(" Geography_Trusted ")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyGeographyTrusted, p)

	_, err = model.ParsePolicy("trusted")
	assert.Error(t, err)
}

func TestSourcePolicyFromYAML(t *testing.T) {
	var src model.Source
	require.NoError(t, yaml.Unmarshal([]byte("name: x\nurl: https://x.org\nparser: idr\npolicy: topic_trusted\n"), &src))
	assert.Equal(t, model.PolicyTopicTrusted, src.Policy)

	err := yaml.Unmarshal([]byte("name: x\npolicy: bogus\n"), &src)
	assert.Error(t, err)
}

func TestCsrKeyIsCaseInsensitive(t *testing.T) {
	a := model.CsrRecord{CIN: "L123AB", Field: "Education", FiscalYear: "2023-24"}
	b := model.CsrRecord{CIN: "l123ab", Field: "EDUCATION", FiscalYear: "2023-24"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestNullable(t *testing.T) {
	assert.Nil(t, model.Nullable("  "))
	assert.Equal(t, "x", *model.Nullable(" x "))
	assert.Equal(t, "", model.Deref(nil))
}
