package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/service"
)

// DocumentIngestor stores or removes knowledge base documents.
type DocumentIngestor interface {
	ReplaceDocument(ctx context.Context, in service.IngestInput) (*service.IngestResult, error)
	DeleteDocument(ctx context.Context, department, documentName string) (int64, error)
}

// DropWatcher monitors a drop folder whose first-level subdirectories name
// departments. A file written to <root>/<department>/<name> is ingested as a
// primary document for that department; removing the file removes the
// document.
type DropWatcher struct {
	root       string
	watcher    *fsnotify.Watcher
	ingest     DocumentIngestor
	extensions []string
	doneChan   chan struct{}
}

// NewDropWatcher creates a watcher over root. Existing department
// subdirectories are registered immediately; new ones are picked up as they
// appear.
func NewDropWatcher(root string, ingest DocumentIngestor, extensions []string) (*DropWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".txt", ".md"}
	}

	w := &DropWatcher{
		root:       root,
		watcher:    fw,
		ingest:     ingest,
		extensions: extensions,
		doneChan:   make(chan struct{}),
	}

	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		fw.Close()
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := fw.Add(filepath.Join(root, entry.Name())); err != nil {
				log.Printf("Drop watcher: cannot watch %s: %v", entry.Name(), err)
			}
		}
	}

	return w, nil
}

// Start consumes filesystem events until the context is cancelled.
func (w *DropWatcher) Start(ctx context.Context) {
	defer close(w.doneChan)

	log.Printf("Drop watcher started on %s", w.root)

	for {
		select {
		case <-ctx.Done():
			log.Println("Drop watcher stopped: context cancelled")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Drop watcher error: %v", err)
		}
	}
}

// Stop closes the underlying watcher and waits for the event loop to drain.
func (w *DropWatcher) Stop() error {
	err := w.watcher.Close()
	<-w.doneChan
	return err
}

func (w *DropWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// A new department directory starts getting watched on creation.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if filepath.Dir(event.Name) == w.root {
				if err := w.watcher.Add(event.Name); err != nil {
					log.Printf("Drop watcher: cannot watch %s: %v", event.Name, err)
				}
			}
			return
		}
	}

	department, documentName, ok := w.splitPath(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.ingestFile(ctx, event.Name, department, documentName)
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.removeFile(ctx, department, documentName)
	}
}

func (w *DropWatcher) ingestFile(ctx context.Context, path, department, documentName string) {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Drop watcher: cannot read %s: %v", path, err)
		return
	}
	if len(content) == 0 {
		return
	}

	result, err := w.ingest.ReplaceDocument(ctx, service.IngestInput{
		Department:   department,
		DocumentName: documentName,
		DocumentType: "text",
		AccessLevel:  domain.AccessEmployee,
		Content:      string(content),
		UploadedBy:   "drop-folder",
	})
	if err != nil {
		log.Printf("Drop watcher: ingest %s/%s failed: %v", department, documentName, err)
		return
	}

	log.Printf("Drop watcher: ingested %s/%s (%d chunks)", department, documentName, result.ChunksStored)
}

func (w *DropWatcher) removeFile(ctx context.Context, department, documentName string) {
	deleted, err := w.ingest.DeleteDocument(ctx, department, documentName)
	if err != nil {
		log.Printf("Drop watcher: delete %s/%s failed: %v", department, documentName, err)
		return
	}
	if deleted > 0 {
		log.Printf("Drop watcher: removed %s/%s (%d chunks)", department, documentName, deleted)
	}
}

// splitPath maps <root>/<department>/<file> to its department and document
// name. Files directly under root, nested deeper, or with an unwatched
// extension are skipped.
func (w *DropWatcher) splitPath(path string) (string, string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", "", false
	}

	dir, file := filepath.Split(rel)
	department := filepath.Clean(dir)
	if department == "." || department == ".." || filepath.Dir(department) != "." {
		return "", "", false
	}
	if !w.isWatchedExtension(file) {
		return "", "", false
	}

	return department, file, true
}

func (w *DropWatcher) isWatchedExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
