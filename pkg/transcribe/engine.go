package transcribe

import (
	"context"
	"fmt"
	"log"
	"strings"

	"transcription-queue/pkg/audio"
	"transcription-queue/pkg/models"
)

// Progress reports processed / total seconds after each chunk.
type Progress func(processed, total float64)

// Engine stitches per-chunk model output into one file-absolute segment list.
// sampleRate is only used for chunks that do not carry their own rate.
type Engine struct {
	sampleRate int
}

func NewEngine(sampleRate int) *Engine {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Engine{sampleRate: sampleRate}
}

// TranscribeChunks runs model over chunks in order. Returned segments carry
// file-absolute times clamped to their chunk, and ids nextID, nextID+1, ...
// shared across all chunks. A model error aborts the call and nothing from
// earlier chunks is returned.
func (e *Engine) TranscribeChunks(ctx context.Context, model Model, chunks []audio.Chunk, nextID int, opts Options, onProgress Progress) ([]models.Segment, error) {
	if model == nil {
		return nil, fmt.Errorf("speech model is not loaded")
	}

	var total float64
	for _, c := range chunks {
		total += c.Duration()
	}

	var (
		segments  []models.Segment
		processed float64
		count     int
	)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rate := chunk.SampleRate
		if rate <= 0 {
			rate = e.sampleRate
		}
		log.Printf("Engine: Transcribing %s (%d/%d)", chunk, i+1, len(chunks))
		result, err := model.Transcribe(ctx, chunk.Samples, rate, opts)
		if err != nil {
			return nil, fmt.Errorf("transcribe chunk %.3f-%.3f: %w", chunk.Start, chunk.End, err)
		}

		if result != nil {
			for _, seg := range result.Segments {
				text := strings.TrimSpace(seg.Text)
				if text == "" {
					continue
				}

				seg.Text = text
				seg.Start += chunk.Start
				seg.End += chunk.Start
				if len(seg.Words) > 0 {
					words := make([]models.Word, len(seg.Words))
					for j, w := range seg.Words {
						w.Start += chunk.Start
						w.End += chunk.Start
						words[j] = w
					}
					seg.Words = words
				}

				// the model overruns chunk boundaries by a few ms
				if seg.End > chunk.End {
					seg.End = chunk.End
				}
				if seg.Start < chunk.Start {
					seg.Start = chunk.Start
				}
				if seg.Start >= seg.End {
					log.Printf("Engine: Dropping empty segment %q at %.3f", text, seg.Start)
					continue
				}

				seg.ID = nextID + count
				count++
				segments = append(segments, seg)
			}
		}

		processed += chunk.Duration()
		if onProgress != nil {
			onProgress(processed, total)
		}
	}

	return segments, nil
}
