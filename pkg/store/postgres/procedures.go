package postgres

const auditStatusOK = "ok"

type procedure struct {
	name string
	body string
}

var procedures = []procedure{
	{
		name: "log_audit_event",
		body: `CREATE OR REPLACE FUNCTION log_audit_event(
	p_event_source    text,
	p_table_name      text,
	p_record_id       text,
	p_action          text,
	p_old_value       jsonb,
	p_new_value       jsonb,
	p_actor_id        text,
	p_success         boolean,
	p_error_message   text,
	p_idempotence_key text,
	p_timestamp       timestamptz
) RETURNS text AS $$
BEGIN
	INSERT INTO audit_log (
		event_source, table_name, record_id, action, old_value, new_value,
		actor_id, success, error_message, idempotence_key, "timestamp"
	) VALUES (
		p_event_source, p_table_name, p_record_id, p_action, p_old_value, p_new_value,
		p_actor_id, p_success, p_error_message, p_idempotence_key, p_timestamp
	)
	ON CONFLICT (idempotence_key) DO NOTHING;

	IF FOUND THEN
		RETURN 'ok';
	END IF;
	RETURN 'duplicate';
END;
$$ LANGUAGE plpgsql`,
	},
	{
		name: "update_sync_state",
		body: `CREATE OR REPLACE FUNCTION update_sync_state(
	p_entity_type text,
	p_entity_id   text,
	p_data_hash   text,
	p_direction   text,
	p_synced_at   timestamptz
) RETURNS void AS $$
BEGIN
	INSERT INTO sync_state (entity_type, entity_id, data_hash, last_synced_at, sync_direction)
	VALUES (p_entity_type, p_entity_id, p_data_hash, p_synced_at, p_direction)
	ON CONFLICT (entity_type, entity_id) DO UPDATE
	SET data_hash      = EXCLUDED.data_hash,
	    last_synced_at = EXCLUDED.last_synced_at,
	    sync_direction = EXCLUDED.sync_direction;
END;
$$ LANGUAGE plpgsql`,
	},
}
