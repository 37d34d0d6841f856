package scheduler

import (
	"log/slog"

	"github.com/xraph/architect"
	"github.com/xraph/architect/job"
)

// process runs one outbound message through the pipeline: annotate,
// validate, filter by state, publish. It reports whether the job has
// terminated.
func (r *run) process(m job.Message) bool {
	m.JobID = r.id
	m.JobName = r.name
	m.Target = r.target

	switch m.Kind {
	case job.KindOutput:
		res, err := r.s.schemas.Validate(r.hookCtx, r.desc.Output, m.Value)
		if err != nil {
			r.finish(err)
			return true
		}
		if !res.Success {
			r.finish(architect.NewSchemaValidationError(architect.ErrOutputSchemaValidation, r.name, res.Errors))
			return true
		}
		m.Value = res.Data

	case job.KindChannelMessage:
		if s, ok := r.desc.Channels[m.Channel]; ok {
			res, err := r.s.schemas.Validate(r.hookCtx, s, m.Value)
			switch {
			case err != nil:
				m = job.Message{Kind: job.KindChannelError, JobID: m.JobID, JobName: m.JobName, Target: m.Target, Channel: m.Channel, Err: err}
			case !res.Success:
				verr := architect.NewSchemaValidationError(architect.ErrChannelMessageSchemaValidation, r.name, res.Errors)
				m = job.Message{Kind: job.KindChannelError, JobID: m.JobID, JobName: m.JobName, Target: m.Target, Channel: m.Channel, Err: verr}
			default:
				m.Value = res.Data
			}
		}
	}

	current := r.State()
	next, ok := current.Accepts(m.Kind)
	if !ok {
		r.s.logger.Debug("dropping message not accepted in current state",
			slog.String("job_id", r.id.String()),
			slog.String("job_name", r.name),
			slog.String("state", string(current)),
			slog.String("kind", string(m.Kind)),
		)
		return false
	}
	if m.Kind.IsChannel() && m.Kind != job.KindChannelCreate && r.channel(m.Channel).Closed() {
		r.s.logger.Debug("dropping message for closed channel",
			slog.String("job_id", r.id.String()),
			slog.String("job_name", r.name),
			slog.String("channel", m.Channel),
			slog.String("kind", string(m.Kind)),
		)
		return false
	}

	r.setState(next)
	r.outbound.Publish(m)

	switch m.Kind {
	case job.KindOnReady:
		r.s.extensions.EmitJobReady(r.hookCtx, r)
	case job.KindStart:
		r.s.extensions.EmitJobStarted(r.hookCtx, r)
	case job.KindOutput:
		r.output.Publish(m.Value)
		r.s.extensions.EmitJobOutput(r.hookCtx, r, m.Value)
	case job.KindChannelCreate:
		r.channel(m.Channel)
	case job.KindChannelMessage:
		r.channel(m.Channel).Publish(m.Value)
	case job.KindChannelComplete:
		r.channel(m.Channel).Close(nil)
	case job.KindChannelError:
		r.channel(m.Channel).Close(m.Err)
	case job.KindEnd:
		r.finish(nil)
		return true
	}
	return false
}

// dispatch routes caller inbound messages to the handler until the job
// finishes.
func (r *run) dispatch() {
	cur := r.inboxCur
	for {
		m, err := cur.Next(r.hookCtx)
		if err != nil {
			return
		}

		switch m.Kind {
		case job.InboundPing:
			if r.emit(r.hookCtx, job.Message{Kind: job.KindPong, PingID: m.PingID}) != nil {
				return
			}

		case job.InboundStop:
			r.inbound.Publish(m)

		case job.InboundInput:
			res, err := r.s.schemas.Validate(r.hookCtx, r.desc.Input, m.Value)
			if err == nil && !res.Success {
				err = architect.NewSchemaValidationError(architect.ErrInboundMessageSchemaValidation, r.name, res.Errors)
			}
			if err != nil {
				r.s.logger.Warn("dropping input that failed schema validation",
					slog.String("job_id", r.id.String()),
					slog.String("job_name", r.name),
					slog.Any("error", err),
				)
				continue
			}
			m.Value = res.Data
			r.inbound.Publish(m)
		}
	}
}
