package memorybank

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/cognidao/membank/internal/types"
)

// applyTextPatch applies a diff-match-patch text patch to the current
// text. Every hunk must apply; a partial application is an error so the
// caller never persists a half-patched block.
func (b *Bank) applyTextPatch(current, patchText string) (string, error) {
	if len(patchText) > b.patchLimit {
		return "", fmt.Errorf("text patch is %d bytes (limit %d): %w", len(patchText), b.patchLimit, ErrPatchTooLarge)
	}
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return "", &PatchError{Stage: "parse", Field: "text", Err: err}
	}
	if len(patches) == 0 {
		return current, nil
	}
	result, applied := dmp.PatchApply(patches, current)
	for i, ok := range applied {
		if !ok {
			return "", &PatchError{Stage: "apply", Field: "text",
				Err: fmt.Errorf("hunk %d of %d did not apply", i+1, len(patches))}
		}
	}
	return result, nil
}

// MakeTextPatch produces a diff-match-patch patch document transforming
// oldText into newText, suitable for UpdateMemoryBlock's text_patch.
func MakeTextPatch(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(oldText, newText))
}

// applyMetadataPatch applies an RFC-6902 JSON Patch to the block's
// metadata. The typed metadata map round-trips through its wire form,
// so bool/int/float distinctions survive patching.
func (b *Bank) applyMetadataPatch(current map[string]types.MetaValue, patchDoc json.RawMessage) (map[string]types.MetaValue, error) {
	if len(patchDoc) > b.patchLimit {
		return nil, fmt.Errorf("metadata patch is %d bytes (limit %d): %w", len(patchDoc), b.patchLimit, ErrPatchTooLarge)
	}
	patch, err := jsonpatch.DecodePatch(patchDoc)
	if err != nil {
		return nil, &PatchError{Stage: "parse", Field: "metadata", Err: err}
	}

	base := current
	if base == nil {
		base = map[string]types.MetaValue{}
	}
	currentJSON, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	modified, err := patch.Apply(currentJSON)
	if err != nil {
		return nil, &PatchError{Stage: "apply", Field: "metadata", Err: err}
	}

	var out map[string]types.MetaValue
	if err := json.Unmarshal(modified, &out); err != nil {
		return nil, &PatchError{Stage: "apply", Field: "metadata",
			Err: fmt.Errorf("patched metadata is not an object: %w", err)}
	}
	return out, nil
}
