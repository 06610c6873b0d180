package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/integration-auditor/internal/model"
)

func testSources(integrations, imports, exports, flows, connections string) Sources {
	return Sources{
		Integrations: strings.NewReader(integrations),
		Imports:      strings.NewReader(imports),
		Exports:      strings.NewReader(exports),
		Flows:        strings.NewReader(flows),
		Connections:  strings.NewReader(connections),
	}
}

const emptyImports = "INTEGRATIONID,_ID,NAME\n"
const emptyExports = "INTEGRATIONID,_ID,NAME\n"
const emptyFlows = "INTEGRATIONID,_ID,NAME\n"
const emptyConnections = "INTEGRATIONID,_ID,OFFLINE,TARGET\n"

func TestStream_JoinsChildTablesByIntegrationID(t *testing.T) {
	integrations := "INTEGRATIONID,EMAIL,USERID,VERSION,STORECOUNT,LICENSEEDITION,UPDATEINPROGRESS,SETTINGS\n" +
		`int-1,a@example.com,u1,1.0,2,premium,false,"{""connectorEdition"":""premium""}"` + "\n"
	imports := "INTEGRATIONID,_ID,NAME\nint-1,imp-1,Import One\nint-1,imp-2,Import Two\n"

	src := testSources(integrations, imports, emptyExports, emptyFlows, emptyConnections)
	ing := New()
	out, errCh := ing.Stream(context.Background(), src)

	var snapshots []model.IntegrationSnapshot
	for s := range out {
		snapshots = append(snapshots, s)
	}
	require.NoError(t, drainErr(errCh))
	require.Len(t, snapshots, 1)
	assert.Equal(t, "int-1", snapshots[0].ID)
	assert.Len(t, snapshots[0].Imports, 2)
	assert.Empty(t, snapshots[0].Exports)
	assert.Equal(t, "premium", snapshots[0].Settings.ConnectorEdition)
}

func TestStream_EmptyChildTablesYieldEmptySlicesNotNil(t *testing.T) {
	integrations := "INTEGRATIONID,EMAIL,USERID,VERSION,STORECOUNT,LICENSEEDITION,UPDATEINPROGRESS,SETTINGS\n" +
		`int-1,a@example.com,u1,1.0,1,starter,false,"{}"` + "\n"

	src := testSources(integrations, emptyImports, emptyExports, emptyFlows, emptyConnections)
	ing := New()
	out, errCh := ing.Stream(context.Background(), src)

	var snapshots []model.IntegrationSnapshot
	for s := range out {
		snapshots = append(snapshots, s)
	}
	require.NoError(t, drainErr(errCh))
	require.Len(t, snapshots, 1)
	assert.NotNil(t, snapshots[0].Imports)
	assert.NotNil(t, snapshots[0].Exports)
	assert.NotNil(t, snapshots[0].Flows)
	assert.NotNil(t, snapshots[0].Connections)
}

func TestStream_HeaderMismatchIsHardError(t *testing.T) {
	integrations := "WRONGCOL,EMAIL\nint-1,a@example.com\n"

	src := testSources(integrations, emptyImports, emptyExports, emptyFlows, emptyConnections)
	ing := New()
	out, errCh := ing.Stream(context.Background(), src)

	for range out {
		t.Fatal("expected no snapshots on header mismatch")
	}
	require.Error(t, drainErr(errCh))
}

func TestStream_MalformedSettingsDegradesToWarningNotError(t *testing.T) {
	integrations := "INTEGRATIONID,EMAIL,USERID,VERSION,STORECOUNT,LICENSEEDITION,UPDATEINPROGRESS,SETTINGS\n" +
		`int-1,a@example.com,u1,1.0,1,starter,false,"{not valid json"` + "\n"

	src := testSources(integrations, emptyImports, emptyExports, emptyFlows, emptyConnections)
	ing := New()
	out, errCh := ing.Stream(context.Background(), src)

	var snapshots []model.IntegrationSnapshot
	for s := range out {
		snapshots = append(snapshots, s)
	}
	require.NoError(t, drainErr(errCh))
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0].Warnings, 1)
}

func TestStream_DoubledQuoteEscapedSettingsParses(t *testing.T) {
	m, err := parseSettings(`{""connectorEdition"":""starter"",""general"":{""a"":1}}`)
	require.NoError(t, err)
	assert.Equal(t, "starter", m["connectorEdition"])
}

func drainErr(errCh <-chan error) error {
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
