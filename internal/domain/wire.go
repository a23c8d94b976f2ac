package domain

// ErrorCodeMalformed marks an error payload for a request that failed validation.
const ErrorCodeMalformed = "malformed_request"

// RelationPayload is one relation_embeddings element. A nil embedding
// encodes as {} and an {} element decodes back to nil.
type RelationPayload struct {
	*RelationEmbedding
}

// BatchResponse is the wire form of a BatchResult. A miss is "" in
// EntityEmbeddings and {} in RelationEmbeddings.
type BatchResponse struct {
	EntityEmbeddings   []string          `json:"entity_embeddings"`
	RelationEmbeddings []RelationPayload `json:"relation_embeddings"`
}

// ErrorResponse replaces the two-array shape when a request is rejected.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// NewBatchResponse converts res into its wire form.
func NewBatchResponse(res BatchResult) BatchResponse {
	out := BatchResponse{
		EntityEmbeddings:   make([]string, len(res.Entities)),
		RelationEmbeddings: make([]RelationPayload, len(res.Relations)),
	}
	for i, r := range res.Entities {
		if r.Found {
			out.EntityEmbeddings[i] = r.Record
		}
	}
	for i, r := range res.Relations {
		if r.Found {
			emb := r.Embedding
			out.RelationEmbeddings[i] = RelationPayload{&emb}
		}
	}
	return out
}

// Result converts a decoded response back into tagged results for the keys
// of req. Keys are the raw request URIs; the caller matches lengths first.
func (r BatchResponse) Result(req BatchRequest) BatchResult {
	out := BatchResult{
		Entities:  make([]EntityResult, len(r.EntityEmbeddings)),
		Relations: make([]RelationResult, len(r.RelationEmbeddings)),
	}
	for i, rec := range r.EntityEmbeddings {
		key := ""
		if i < len(req.Entities) {
			key = req.Entities[i]
		}
		out.Entities[i] = EntityResult{Key: key, Found: rec != "", Record: rec}
	}
	for i, p := range r.RelationEmbeddings {
		key := ""
		if i < len(req.Relations) {
			key = req.Relations[i]
		}
		if p.RelationEmbedding == nil {
			out.Relations[i] = RelationMiss(key)
			continue
		}
		out.Relations[i] = RelationResult{Key: key, Found: true, Embedding: *p.RelationEmbedding}
	}
	return out
}
