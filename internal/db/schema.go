package db

// Table names.
const (
	TableMessage     = "message"
	TableParticipant = "participant"
	TableAgent       = "agent"
	TableTemplate    = "template"
	TableGeneration  = "generation"
)

// Tables lists every table owned by chorus.
var Tables = []string{TableMessage, TableParticipant, TableAgent, TableTemplate, TableGeneration}

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- MESSAGE TABLE (append-only; ai_read is the only mutable field)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS room_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS ai_read ON message TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_room_created ON message FIELDS room_id, created_at;

    -- ==========================================================================
    -- PARTICIPANT TABLE (one record per room member)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS participant SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS room_id ON participant TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON participant TYPE string;
    DEFINE FIELD IF NOT EXISTS joined_at ON participant TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS participant_room_user ON participant FIELDS room_id, user_id UNIQUE;

    -- ==========================================================================
    -- AGENT TABLE (AI personas)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS agent SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON agent TYPE string;
    DEFINE FIELD IF NOT EXISTS personality ON agent TYPE string;
    DEFINE FIELD IF NOT EXISTS voice ON agent TYPE option<string>;

    -- ==========================================================================
    -- TEMPLATE TABLE (visualization templates)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS template SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON template TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON template TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS tags ON template TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS type ON template TYPE string;
    DEFINE FIELD IF NOT EXISTS schema_name ON template TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS schema ON template TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS threshold ON template TYPE float DEFAULT 0.75;
    DEFINE FIELD IF NOT EXISTS example_prompt ON template TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS example_props ON template TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS markup ON template TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS fallback_markup ON template TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON template TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON template TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS template_type ON template FIELDS type;

    -- ==========================================================================
    -- GENERATION TABLE (exactly one of props / raw_markup per record)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS generation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS room_id ON generation TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON generation TYPE string;
    DEFINE FIELD IF NOT EXISTS render_method ON generation TYPE string
        ASSERT $value IN ["template", "fallback_iframe"];
    DEFINE FIELD IF NOT EXISTS template_id ON generation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS props ON generation TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS raw_markup ON generation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS confidence ON generation TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS summary ON generation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS slug ON generation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_by ON generation TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON generation TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON generation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS generation_room_created ON generation FIELDS room_id, created_at;
`
