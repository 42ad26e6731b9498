// Package objects implements the supporting-object engine: it makes embedded
// image references inside stored HTML works servable from this system, and
// deduplicates the fetched payloads by content hash.
package objects

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
)

// Rewrite parses raw as HTML and redirects every <img> through this system.
//
// For each <img src="..."> it allocates a fresh object id from the shared
// sequence, records an unfetched_objects row, rewrites src to /objects/<id>
// and sets onerror so browsers fall back to the publisher URL while the
// payload is still unfetched (or if it never arrives).
//
// Returns the serialised HTML and the newly created unfetched descriptors.
// Runs inside the caller's transaction; a failed store aborts cleanly with no
// ids leaked.
func Rewrite(ctx context.Context, tx *store.GORMStore, raw []byte, now time.Time) ([]byte, []models.UnfetchedObject, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	var unfetched []models.UnfetchedObject

	var walk func(n *html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.Data == "img" {
			if err := rewriteImg(ctx, tx, n, now, &unfetched); err != nil {
				return err
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc); err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), unfetched, nil
}

// rewriteImg redirects a single <img> element through /objects/<id>.
func rewriteImg(ctx context.Context, tx *store.GORMStore, n *html.Node, now time.Time, unfetched *[]models.UnfetchedObject) error {
	srcIdx := -1
	for i, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == "src" {
			srcIdx = i
			break
		}
	}
	if srcIdx < 0 || n.Attr[srcIdx].Val == "" {
		return nil
	}
	originalSrc := n.Attr[srcIdx].Val

	objectID, err := tx.AllocateObjectID(ctx)
	if err != nil {
		return fmt.Errorf("allocate object id: %w", err)
	}

	row := models.UnfetchedObject{
		ObjectID:   objectID,
		RequestURL: originalSrc,
		Timestamp:  now,
	}
	if err := tx.CreateUnfetchedObject(ctx, &row); err != nil {
		return fmt.Errorf("record unfetched object: %w", err)
	}
	*unfetched = append(*unfetched, row)

	setAttr(n, "onerror", fmt.Sprintf("this.src='%s';this.onerror=''", originalSrc))
	n.Attr[srcIdx].Val = fmt.Sprintf("/objects/%d", objectID)
	return nil
}

// setAttr replaces or appends an attribute on an element node.
func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
