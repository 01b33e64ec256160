package markov

import (
	"encoding/json"
	"fmt"
	"io"
)

// ExportedModel is the serializable representation of a trained chain,
// used for JSON-based import and export.
type ExportedModel struct {
	Order  int             `json:"order"`
	Chains []ExportedChain `json:"chains"`
}

// ExportedChain is the serializable representation of a single link
// in a Markov chain, used within an ExportedModel.
type ExportedChain struct {
	Context   []string `json:"context"`
	NextToken string   `json:"next_token"`
	Frequency int      `json:"frequency"`
}

// exportedChainJSON is the wire form of an ExportedChain. Tokens that are not
// valid UTF-8 are written as {"bytes":"<base64>"}.
type exportedChainJSON struct {
	Context   []wireToken `json:"context"`
	NextToken wireToken   `json:"next_token"`
	Frequency int         `json:"frequency"`
}

func (e ExportedChain) MarshalJSON() ([]byte, error) {
	return json.Marshal(exportedChainJSON{
		Context:   toWire(e.Context),
		NextToken: wireToken(e.NextToken),
		Frequency: e.Frequency,
	})
}

func (e *ExportedChain) UnmarshalJSON(data []byte) error {
	var raw exportedChainJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = ExportedChain{
		Context:   fromWire(raw.Context),
		NextToken: string(raw.NextToken),
		Frequency: raw.Frequency,
	}
	return nil
}

// Export serializes c into a single indented JSON document and writes it to w.
// This is useful for backups or for transferring chains between stores.
func Export(w io.Writer, c *Chain) error {
	records := c.Records()
	exported := ExportedModel{
		Order:  c.Order(),
		Chains: make([]ExportedChain, 0, len(records)),
	}
	for _, r := range records {
		exported.Chains = append(exported.Chains, ExportedChain{
			Context:   r.Context,
			NextToken: r.Token,
			Frequency: r.Count,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exported); err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	return nil
}

// Import reads a JSON document written by Export and reconstructs the chain.
// Links repeated in the document have their frequencies added.
func Import(r io.Reader) (*Chain, error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, fmt.Errorf("%w: failed to decode json model: %v", ErrCorruptData, err)
	}

	c, err := NewChain(imported.Order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	for i, link := range imported.Chains {
		if len(link.Context) != c.ContextLen() {
			return nil, fmt.Errorf("%w: chain %d: context has %d tokens, want %d", ErrCorruptData, i, len(link.Context), c.ContextLen())
		}
		if link.Frequency < 0 {
			return nil, fmt.Errorf("%w: chain %d: negative frequency %d", ErrCorruptData, i, link.Frequency)
		}
		if link.Frequency > 0 {
			c.add(link.Context, link.NextToken, link.Frequency)
		}
	}
	return c, nil
}
