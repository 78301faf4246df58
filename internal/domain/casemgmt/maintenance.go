package casemgmt

import (
	"context"
)

// RunMaintenance applies the time-based lifecycle rules for one clinic:
//
//  1. Pending, Active and Queued cases with an Approved, Pending or Queued
//     appointment at least NoShowGrace in the past become No Show.
//  2. Those appointments of exactly the cases from step 1 become No Show.
//  3. No Show cases with any appointment at least ArchiveAfter in the past
//     are archived.
//  4. Every appointment of the cases archived in step 3 becomes Removed.
//
// The steps share one transaction. Each update is guarded by the current
// status, so a second run with the same clock changes nothing and
// concurrent runs are safe.
func (s *Service) RunMaintenance(ctx context.Context, clinicID int64) (*SweepResult, error) {
	now := s.now()
	noShowCutoff := now.Add(-s.opts.NoShowGrace)
	archiveCutoff := now.Add(-s.opts.ArchiveAfter)

	res := &SweepResult{}
	err := s.inTx(ctx, "run maintenance", func(ctx context.Context) error {
		noShow, err := s.cases.MarkNoShow(ctx, clinicID, noShowCutoff)
		if err != nil {
			return err
		}
		if res.AppointmentsNoShow, err = s.appointments.MarkNoShowForCases(ctx, noShow); err != nil {
			return err
		}

		archived, err := s.cases.ArchiveNoShows(ctx, clinicID, archiveCutoff)
		if err != nil {
			return err
		}
		if res.AppointmentsRemoved, err = s.appointments.RemoveForCases(ctx, archived); err != nil {
			return err
		}

		res.ToNoShow = len(noShow)
		res.ArchivedFromNoShow = len(archived)
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("clinic_id", clinicID).Msg("maintenance sweep failed")
		return nil, err
	}

	evt := s.logger.Debug()
	if res.ToNoShow > 0 || res.ArchivedFromNoShow > 0 {
		evt = s.logger.Info()
	}
	evt.Int64("clinic_id", clinicID).
		Int("to_no_show", res.ToNoShow).
		Int("archived_from_no_show", res.ArchivedFromNoShow).
		Int("appointments_no_show", res.AppointmentsNoShow).
		Int("appointments_removed", res.AppointmentsRemoved).
		Msg("maintenance sweep")
	return res, nil
}
