package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodec_RegisteredUnderJSONSubtype(t *testing.T) {
	codec := encoding.GetCodec(codecName)
	require.NotNil(t, codec)
	assert.Equal(t, codecName, codec.Name())
}

func TestJSONCodec_RoundTripsHandWrittenMessageTypes(t *testing.T) {
	codec := encoding.GetCodec(codecName)
	require.NotNil(t, codec)

	in := &ProveRequest{
		TaskType:  "TIGA",
		ProverID:  "CIRCOM",
		CircuitID: "tiga-core-v1",
		Payload:   []byte(`{"x":1}`),
		Length:    7,
	}

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := new(ProveRequest)
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, in, out)
}

func TestJSONCodec_RoundTripsProvingBackendTypes(t *testing.T) {
	codec := encoding.GetCodec(codecName)
	require.NotNil(t, codec)

	in := &ProvingBackendResponse{Proof: []byte("proof"), PublicWitness: []string{"a", "b"}}

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := new(ProvingBackendResponse)
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, in, out)
}
