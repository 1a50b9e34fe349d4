package docstore

// Project applies a native projection to doc. Inclusion projections keep the
// listed paths plus the native id unless it is excluded explicitly;
// exclusion projections drop the listed paths.
func Project(doc Document, projection Document) Document {
	if len(projection) == 0 || doc == nil {
		return doc
	}
	include := false
	for k, v := range projection {
		if k != IDField && truthy(v) {
			include = true
			break
		}
	}

	if !include {
		out := CloneDocument(doc)
		for k, v := range projection {
			if !truthy(v) {
				UnsetPath(out, k)
			}
		}
		return out
	}

	out := Document{}
	if v, ok := projection[IDField]; !ok || truthy(v) {
		if id, has := doc[IDField]; has {
			out[IDField] = id
		}
	}
	for k, v := range projection {
		if k == IDField || !truthy(v) {
			continue
		}
		if val, ok := Lookup(doc, k); ok {
			SetPath(out, k, Clone(val))
		}
	}
	return out
}

// Pick keeps only the listed top-level fields of doc.
func Pick(doc Document, fields ...string) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}
