package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/google/uuid"
)

type memoryRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.Job
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{jobs: map[uuid.UUID]entity.Job{}}
}

func (r *memoryRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return port.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	return &job, nil
}

type fakeStorage struct {
	downloadErr error
	uploads     map[string][]byte
	lastInfo    port.ArchiveInfo
}

func (s *fakeStorage) DownloadVideo(_ context.Context, _ string, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("video"), 0644)
}

func (s *fakeStorage) UploadArchive(_ context.Context, key string, r io.Reader, _ int64, info port.ArchiveInfo) error {
	s.lastInfo = info
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.uploads == nil {
		s.uploads = map[string][]byte{}
	}
	s.uploads[key] = data
	return nil
}

type fakeInspector struct {
	props entity.VideoProperties
	err   error
}

func (i *fakeInspector) Inspect(_ context.Context, path string) (*entity.VideoInfo, error) {
	if i.err != nil {
		return nil, i.err
	}
	return &entity.VideoInfo{Path: path, VideoProperties: i.props}, nil
}

// scriptedSampler reports progress for frames decoded frames and writes one
// file per kept frame before returning result.
type scriptedSampler struct {
	frames int
	result entity.SamplingResult
	got    []entity.SamplingRequest
}

func (s *scriptedSampler) Sample(_ context.Context, req entity.SamplingRequest, sink port.ProgressSink) entity.SamplingResult {
	s.got = append(s.got, req)
	res := s.result
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return res
	}
	for i := 0; i < res.SavedFrames; i++ {
		p := filepath.Join(req.OutputDir, fmt.Sprintf("frame_%05d.jpg", i))
		_ = os.WriteFile(p, []byte{byte(i)}, 0644)
		res.FramePaths = append(res.FramePaths, p)
	}
	for i := 1; i <= s.frames; i++ {
		sink.Progress(i, s.frames)
	}
	return res
}

type fakeArchiver struct {
	err   error
	paths []string
}

func (a *fakeArchiver) CreateArchive(_ context.Context, paths []string, out string) error {
	if a.err != nil {
		return a.err
	}
	a.paths = paths
	return os.WriteFile(out, []byte("zip"), 0644)
}

type recordingPublisher struct {
	statuses []entity.SamplingStatusMessage
	progress []entity.SamplingProgressMessage
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	var m entity.SamplingStatusMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	p.statuses = append(p.statuses, m)
	return nil
}

func (p *recordingPublisher) PublishProgress(_ context.Context, msg []byte) error {
	var m entity.SamplingProgressMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	p.progress = append(p.progress, m)
	return nil
}

func (p *recordingPublisher) last() entity.SamplingStatusMessage {
	return p.statuses[len(p.statuses)-1]
}

type recordingDLQ struct {
	reasons []string
	bodies  [][]byte
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	d.bodies = append(d.bodies, msg)
	d.reasons = append(d.reasons, reason)
	return nil
}

type recordingNotifier struct {
	notices []port.FailureNotice
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	n.notices = append(n.notices, notice)
	return nil
}

var errFlaky = errors.New("connection reset by peer")
